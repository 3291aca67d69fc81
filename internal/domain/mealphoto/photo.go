package mealphoto

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// AutoKeyPrefix marks fingerprints derived from the request instead of
// supplied by the client.
const AutoKeyPrefix = "auto-"

const fingerprintHexLen = 24

// PhotoRef identifies the photo to analyse. Exactly one of ID or URL is used;
// ID wins when both are set.
type PhotoRef struct {
	ID  string `json:"photo_id,omitempty"`
	URL string `json:"photo_url,omitempty"`
}

// NewPhotoRef trims and validates a photo reference.
func NewPhotoRef(id, rawURL string) (PhotoRef, error) {
	ref := PhotoRef{ID: strings.TrimSpace(id), URL: strings.TrimSpace(rawURL)}
	if ref.ID != "" {
		ref.URL = ""
		return ref, nil
	}
	if ref.URL == "" {
		return PhotoRef{}, ErrMissingPhotoReference
	}
	u, err := url.Parse(ref.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return PhotoRef{}, ErrInvalidPhotoURL
	}
	return ref, nil
}

// String returns the canonical reference used for fingerprinting.
func (r PhotoRef) String() string {
	if r.ID != "" {
		return "id:" + r.ID
	}
	return "url:" + r.URL
}

// IsZero reports whether no reference is set.
func (r PhotoRef) IsZero() bool {
	return r.ID == "" && r.URL == ""
}

// Fingerprint returns the idempotency key for an analyze request: the
// explicit client key verbatim, or a truncated hash of user and photo.
func Fingerprint(userID uuid.UUID, ref PhotoRef, explicitKey string) string {
	if k := strings.TrimSpace(explicitKey); k != "" {
		return k
	}
	sum := sha256.Sum256([]byte(userID.String() + "|" + ref.String()))
	return AutoKeyPrefix + hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

// StoreKey is the key a fingerprint is persisted under. It is scoped to the
// user so that equal client keys from different users never share an analysis.
func StoreKey(userID uuid.UUID, fingerprint string) string {
	sum := sha256.Sum256([]byte(userID.String() + "|" + fingerprint))
	return hex.EncodeToString(sum[:])
}
