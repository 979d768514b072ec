package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) []string{
		validateAPISettings,
		validateCacheSettings,
		validateDatabaseSettings,
		validateImageSettings,
	} {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAPISettings(s *Settings) []string {
	var errs []string

	u, err := url.Parse(s.API.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("api.base_url: %v", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, "api.base_url must be an absolute http(s) URL")
	}

	if s.API.Timeout < 0 {
		errs = append(errs, "api.timeout must not be negative")
	}
	return errs
}

func validateCacheSettings(s *Settings) []string {
	var errs []string
	if s.Cache.BreedsTTL <= 0 {
		errs = append(errs, "cache.breeds_ttl must be positive")
	}
	if s.Cache.ImagesTTL <= 0 {
		errs = append(errs, "cache.images_ttl must be positive")
	}
	return errs
}

func validateDatabaseSettings(s *Settings) []string {
	switch s.Database.Type {
	case "sqlite":
		return nil
	case "mysql":
		if s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "" {
			return []string{"database.mysql.host and database.mysql.database are required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("database.type %q is not supported, use sqlite or mysql", s.Database.Type)}
	}
}

func validateImageSettings(s *Settings) []string {
	var errs []string
	if s.Images.Workers < 1 {
		errs = append(errs, "images.workers must be at least 1")
	}
	if s.Images.QueueSize < 1 {
		errs = append(errs, "images.queue_size must be at least 1")
	}
	if s.Images.RateLimit <= 0 {
		errs = append(errs, "images.rate_limit must be positive")
	}
	if s.Images.JPEGQuality < 1 || s.Images.JPEGQuality > 100 {
		errs = append(errs, "images.jpeg_quality must be between 1 and 100")
	}
	if s.Images.MaxDimension < 0 {
		errs = append(errs, "images.max_dimension must not be negative")
	}
	return errs
}
