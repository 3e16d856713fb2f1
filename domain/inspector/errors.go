// Package inspector defines exports of declared machines and stored
// conversations.
package inspector

import "errors"

var (
	// ErrInvalidFormat indicates an unsupported export format.
	ErrInvalidFormat = errors.New("invalid export format")

	// ErrExportFailed indicates the data could not be rendered.
	ErrExportFailed = errors.New("export failed")

	// ErrNoData indicates a machine-less agent or an empty conversation.
	ErrNoData = errors.New("no data to export")

	// ErrNoHistoryStore indicates a conversation export without a store.
	ErrNoHistoryStore = errors.New("no history store to export from")
)
