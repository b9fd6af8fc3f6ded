package attachments

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"regexp"
)

var ErrBadContentDisposition = errors.New("bad content-disposition")

// extendedFilename matches the RFC 5987 extended filename parameter the portal sends,
// a charset followed by the percent-encoded name.
var extendedFilename = regexp.MustCompile(`filename\*=([\w-]+)''([\w.%()+\-]+)$`)

// FilenameOf returns the percent-decoded file name announced by a content-disposition
// header.
func FilenameOf(header string) (string, error) {
	matches := extendedFilename.FindAllStringSubmatch(header, -1)
	if len(matches) == 1 {
		name, err := url.PathUnescape(matches[0][2])
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrBadContentDisposition, header, err)
		}
		return name, nil
	}

	_, params, err := mime.ParseMediaType(header)
	if err == nil && params["filename"] != "" {
		return params["filename"], nil
	}
	return "", fmt.Errorf("%w: '%s'", ErrBadContentDisposition, header)
}
