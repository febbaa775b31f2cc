package enums

import "fmt"

// NotificationType classifies locally derived notifications.
type NotificationType string

const (
	NotificationTypeRatingRequest NotificationType = "rating_request"
	NotificationTypeStatusChange  NotificationType = "status_change"
	NotificationTypeNewMessage    NotificationType = "new_message"
	NotificationTypeNewTicket     NotificationType = "new_ticket"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeRatingRequest,
	NotificationTypeStatusChange,
	NotificationTypeNewMessage,
	NotificationTypeNewTicket,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
