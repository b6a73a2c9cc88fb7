package core

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
)

const defaultAttachmentContentType = "application/octet-stream"

// MultipartBody is an encoded multipart/form-data payload.
type MultipartBody struct {
	Body        []byte
	ContentType string
}

// Headers returns the content headers the transport must send with Body.
func (m MultipartBody) Headers() map[string]string {
	return map[string]string{
		"Content-Type":   m.ContentType,
		"Content-Length": strconv.Itoa(len(m.Body)),
	}
}

// EncodeMultipart writes fields in order. Plain values become simple form
// fields; file attachments carry a filename and content type.
func EncodeMultipart(fields []FormField) (MultipartBody, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for index, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return MultipartBody{}, newBadInputError(fmt.Sprintf("core: form field %d has no name", index), nil)
		}
		switch field.Kind {
		case FormFieldFile:
			if err := writeFilePart(writer, name, field); err != nil {
				return MultipartBody{}, err
			}
		case FormFieldPlain, "":
			if err := writer.WriteField(name, field.Value); err != nil {
				return MultipartBody{}, fmt.Errorf("core: write form field %q: %w", name, err)
			}
		default:
			return MultipartBody{}, newBadInputError(fmt.Sprintf("core: form field %q has unknown kind %q", name, field.Kind), nil)
		}
	}
	if err := writer.Close(); err != nil {
		return MultipartBody{}, fmt.Errorf("core: close multipart writer: %w", err)
	}
	return MultipartBody{
		Body:        buf.Bytes(),
		ContentType: writer.FormDataContentType(),
	}, nil
}

func writeFilePart(writer *multipart.Writer, name string, field FormField) error {
	filename := strings.TrimSpace(field.Attachment.Filename)
	if filename == "" {
		filename = name
	}
	contentType := strings.TrimSpace(field.Attachment.ContentType)
	if contentType == "" {
		contentType = defaultAttachmentContentType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(name), escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("core: create file part %q: %w", name, err)
	}
	if _, err := part.Write(field.Content); err != nil {
		return fmt.Errorf("core: write file part %q: %w", name, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(value string) string {
	return quoteEscaper.Replace(value)
}
