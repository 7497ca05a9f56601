// Package notifications delivers job outcomes via ntfy.
//
// When notifications.ntfy_topic is empty NewService returns nil, and the nil
// service accepts every call without sending anything, so callers never need
// to branch on whether notifications are configured.
package notifications
