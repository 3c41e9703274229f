package intake

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/http"
	"net/mail"
	"net/textproto"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// maxMIMEDepth bounds recursion into nested multipart bodies
const maxMIMEDepth = 8

// attachment is an image found in a mail message
type attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeHeader decodes RFC 2047 encoded words, returning the input unchanged
// when it cannot be decoded
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractImages walks a message and returns every image part, whether sent
// inline or as an attachment
func extractImages(msg *mail.Message) ([]attachment, error) {
	var out []attachment
	err := walkPart(textproto.MIMEHeader(msg.Header), msg.Body, 0, &out)
	return out, err
}

func walkPart(header textproto.MIMEHeader, body io.Reader, depth int, out *[]attachment) error {
	if depth > maxMIMEDepth {
		return nil
	}

	contentType := header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			return nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read MIME part: %w", err)
			}
			if err := walkPart(part.Header, part, depth+1, out); err != nil {
				return err
			}
		}
	}

	filename := partFilename(header, params)
	if !strings.HasPrefix(mediaType, "image/") && mediaType != "application/octet-stream" {
		return nil
	}

	data, err := io.ReadAll(transferDecoder(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return fmt.Errorf("failed to decode attachment %q: %w", filename, err)
	}

	if mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
		if !strings.HasPrefix(mediaType, "image/") {
			return nil
		}
	}

	*out = append(*out, attachment{Filename: filename, MimeType: mediaType, Data: data})
	return nil
}

func partFilename(header textproto.MIMEHeader, ctParams map[string]string) string {
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return decodeHeader(name)
		}
	}
	return decodeHeader(ctParams["name"])
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// splitHeaderBody returns the raw body that follows the header block
func splitHeaderBody(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[i+2:]
	}
	return nil
}
