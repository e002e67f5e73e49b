package types

// Image is a photographed set of ingredients ready for upload.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}
