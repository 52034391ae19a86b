package speech

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const wavExtension = ".wav"

// ResolveContainer decides how a payload is stored. A mime type with a known
// file extension keeps its bytes as is; anything else is raw PCM and gets a
// WAV header built from the mime parameters. Parameters that do not fit the
// header fail with ErrUnsupportedAudioParams.
func ResolveContainer(mimeType string, payload []byte) (string, []byte, error) {
	if ext := extensionFor(mimeType); ext != "" {
		return ext, payload, nil
	}
	data, err := EncodeWAV(payload, ParseAudioMime(mimeType))
	if err != nil {
		return "", nil, err
	}
	return wavExtension, data, nil
}

func extensionFor(mimeType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if mediaType == "" {
		return ""
	}
	m := mimetype.Lookup(mediaType)
	if m == nil {
		return ""
	}
	return m.Extension()
}
