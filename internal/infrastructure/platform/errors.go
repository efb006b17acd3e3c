package platform

import "errors"

var (
	// ErrUnknownPlatform is returned for a platform with no registered scraper
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrUnsupportedFormat is returned for batch files that are not JSON, CSV or XLSX
	ErrUnsupportedFormat = errors.New("unsupported batch file format")

	// ErrEmptyFile is returned when a batch file has no content
	ErrEmptyFile = errors.New("batch file is empty")

	// ErrInvalidEncoding is returned when a CSV batch is not UTF-8
	ErrInvalidEncoding = errors.New("batch file is not valid UTF-8")

	// ErrMissingHeader is returned when a tabular batch has no header row
	ErrMissingHeader = errors.New("batch file missing header row")
)
