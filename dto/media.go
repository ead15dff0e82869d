package dto

type MediaUploadResponse struct {
	AssetID    string `json:"asset_id"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
}
