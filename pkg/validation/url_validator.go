package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/profile-image-analyzer/internal/errors"
)

// hostlessSchemes do not carry a network host.
var hostlessSchemes = map[string]bool{"data": true}

// networkSchemes are fetched from the host named in the URL. The host
// allow-list applies to them only.
var networkSchemes = map[string]bool{"http": true, "https": true}

// URLValidator handles URL validation logic
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidatorWithOptions creates a URL validator for the given schemes.
// An empty hosts list allows every host. A host entry starting with "." or
// "*." also matches its subdomains.
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(h, "*")
		if h != "" && h != "." {
			normalized = append(normalized, h)
		}
	}
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   normalized,
	}
}

// ValidateImageURL validates if the provided URL is acceptable for image processing
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	// data URLs can be megabytes of base64; only the header matters here
	if strings.HasPrefix(imageURL, "data:") {
		if !v.isSchemeAllowed("data") {
			return apperrors.NewValidationError("URL scheme not allowed", nil)
		}
		if !strings.HasPrefix(imageURL, "data:image/") || !strings.Contains(imageURL, ",") {
			return apperrors.NewValidationError("data URL must carry an image payload", nil)
		}
		return nil
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if !v.isSchemeAllowed(scheme) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" && !hostlessSchemes[scheme] {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if networkSchemes[scheme] && !v.isHostAllowed(parsedURL.Hostname()) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// isSchemeAllowed checks if the URL scheme is in the allowed list
func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the URL host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
