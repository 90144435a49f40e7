package models

type ClothingUrlRequstIn struct {
	ClothingId uint   `json:"clothing_id"`
	FileName   string `json:"file_name"`
}

type ClothingFilesUploadRequestIn struct {
	Clothes []ClothingUrlRequstIn `json:"clothes"`
}

type ClothingFileUploadRequestOut struct {
	ClothingId uint   `json:"clothing_id"`
	FileName   string `json:"file_name"`
	UploadUrl  string `json:"upload_url"`
}

type ClothingFilesUploadRequestOut struct {
	Clothes []ClothingFileUploadRequestOut `json:"clothes"`
}
