package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/h2non/filetype"
	filetypes "github.com/h2non/filetype/matchers"
	"github.com/pkg/errors"
	"golang.org/x/image/webp"
)

const mediaPrefix = "[media] "

var (
	errNotAnImage = errors.New("not an image")

	// matches Telegram file links: https://api.telegram.org/file/bot<token>/<path>
	fileLinkRx = regexp.MustCompile(`^https://api\.telegram\.org/file/bot[^/]+/([\w\-./]+)$`)
	filePathRx = regexp.MustCompile(`^[\w\-]+(/[\w\-.]+)*$`)
)

// mediaContent renders the stored content of a media message
func mediaContent(ref, caption string) string {
	if caption == "" {
		return mediaPrefix + ref
	}

	return mediaPrefix + ref + "\n" + caption
}

// splitMediaContent is the inverse of mediaContent
func splitMediaContent(content string) (ref, caption string, ok bool) {
	if !strings.HasPrefix(content, mediaPrefix) {
		return "", "", false
	}

	rest := content[len(mediaPrefix):]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		return rest[:i], rest[i+1:], true
	}

	return rest, "", true
}

// telegramFilePath extracts the file path from a stored Telegram file link
func telegramFilePath(link string) (string, bool) {
	m := fileLinkRx.FindStringSubmatch(link)
	if m == nil || strings.Contains(m[1], "..") {
		return "", false
	}

	return m[1], true
}

func validFilePath(p string) bool {
	return filePathRx.MatchString(p) && !strings.Contains(p, "..")
}

func decodeBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, errors.Wrap(err, "base64 photo")
	}

	return raw, nil
}

// decodeBase64Photo accepts plain base64 or a data URL
func decodeBase64Photo(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}

	raw, err := decodeBase64(data)
	if err != nil {
		return nil, err
	}

	return normalizeImage(raw)
}

// normalizeImage checks that raw is an image and converts webp to png, which
// Telegram does not accept as a photo.
func normalizeImage(raw []byte) ([]byte, error) {
	kind, err := filetype.Match(raw)
	if err != nil {
		return nil, err
	}

	if kind == filetypes.TypeWebp {
		img, err := webp.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "webp decode")
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "png encode")
		}

		return buf.Bytes(), nil
	}

	if !filetype.IsImage(raw) {
		return nil, errNotAnImage
	}

	return raw, nil
}

// imageExtension returns a file name suffix for raw image bytes
func imageExtension(raw []byte) string {
	kind, err := filetype.Match(raw)
	if err != nil || kind == filetype.Unknown {
		return "jpg"
	}

	return kind.Extension
}

// MediaArchive stores console uploads so the message row can reference them
type MediaArchive interface {
	Upload(name string, data []byte) (string, error)
}

type s3Archive struct {
	uploader *s3manager.Uploader
	config   ConfigAWS
}

func newMediaArchive(config ConfigAWS) MediaArchive {
	if config.Bucket == "" {
		return nil
	}

	s := session.Must(session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			""),
		Region: aws.String(config.Region),
	}))

	return &s3Archive{uploader: s3manager.NewUploader(s), config: config}
}

func (a *s3Archive) Upload(name string, data []byte) (string, error) {
	kind, _ := filetype.Match(data)

	result, err := a.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(fmt.Sprintf("%v/%v", a.config.FolderName, name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", errors.Wrap(err, "s3 upload")
	}

	return result.Location, nil
}
