package models

// AudioArtifact is a synthesized audio file before it is written to storage.
type AudioArtifact struct {
	Name      string
	Extension string
	MIMEType  string
	Data      []byte
}

// FileName joins the generated name with the resolved container extension.
func (a *AudioArtifact) FileName() string {
	return a.Name + a.Extension
}
