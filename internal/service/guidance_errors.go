package service

import "errors"

var (
	// ErrGuidanceValidation indicates the submitted message is malformed or empty after sanitising.
	ErrGuidanceValidation = errors.New("invalid guidance message")
	// ErrUserNotFound indicates the sender does not resolve to a known user.
	ErrUserNotFound = errors.New("user not found")
	// ErrReplyForbidden indicates the sender's role may not reply.
	ErrReplyForbidden = errors.New("only SENIOR users can reply to messages")
	// ErrParentNotFound indicates the reply target does not exist.
	ErrParentNotFound = errors.New("reply target not found")
	// ErrReplyDepthExceeded indicates a reply targeted another reply.
	ErrReplyDepthExceeded = errors.New("replies can only target top-level messages")
	// ErrContentRejected indicates the moderation gate judged the text unsafe.
	ErrContentRejected = errors.New("content not allowed")
	// ErrModerationUnavailable indicates no trustworthy verdict could be obtained in time.
	ErrModerationUnavailable = errors.New("content moderation temporarily unavailable")
	// ErrStorageFailure indicates the thread store failed for reasons other than a domain rule.
	ErrStorageFailure = errors.New("guidance storage failure")
)
