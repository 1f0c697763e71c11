package errs

import "errors"

var (
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrBusy                 = errors.New("a response is already loading for this conversation")
	ErrConversationRequired = errors.New("conversation id is required")
	ErrEmptyResponse        = errors.New("no response candidates")
	ErrUnknownDriver        = errors.New("unknown storage driver")
	ErrMessageTooLong       = errors.New("message is longer than a spreadsheet cell allows")
)
