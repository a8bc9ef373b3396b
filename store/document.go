package store

// DocumentStatus is the lifecycle stage of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusRaw        DocumentStatus = "raw"
	DocumentStatusConverted  DocumentStatus = "converted"
	DocumentStatusVectorized DocumentStatus = "vectorized"
)

type Document struct {
	ID            string
	OriginalName  string
	StoragePath   string
	MimeType      string
	Size          int64
	Status        DocumentStatus
	ExtractedText string
	UploadedTs    int64
	UpdatedTs     int64
}

type FindDocument struct {
	ID     *string
	Status *DocumentStatus
}

type UpdateDocument struct {
	ID            string
	Status        *DocumentStatus
	ExtractedText *string
	UpdatedTs     int64
}

type DeleteDocument struct {
	ID string
}
