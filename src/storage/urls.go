package storage

import (
	"net/url"
	"strings"
)

const (
	WebTransformation       = "f_webp,q_80,w_1920"
	ThumbnailTransformation = "f_webp,q_70,w_400"

	uploadSegment = "/upload/"
)

// Inserts transformation after the first /upload/ segment of a CDN URL. URLs
// without that segment come back unchanged.
func TransformURL(rawURL, transformation string) string {
	if transformation == "" {
		return rawURL
	}
	i := strings.Index(rawURL, uploadSegment)
	if i < 0 {
		return rawURL
	}
	split := i + len(uploadSegment)
	return rawURL[:split] + strings.Trim(transformation, "/") + "/" + rawURL[split:]
}

func WebURL(originalURL string) string {
	return TransformURL(originalURL, WebTransformation)
}

func ThumbnailURL(originalURL string) string {
	return TransformURL(originalURL, ThumbnailTransformation)
}

// Canonical CDN URL for a stored object, optionally with a transformation.
// Each key segment is path-escaped.
func (s *RemoteStore) BuildURL(remoteID, transformation string) string {
	segments := strings.Split(strings.TrimPrefix(remoteID, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return TransformURL(s.deliveryURL+uploadSegment+strings.Join(segments, "/"), transformation)
}
