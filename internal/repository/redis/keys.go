package redis

import "fmt"

const ns = "besttickets:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventTicketTypes(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:tickettypes", ns, eventID)
}

func KeyTicketTypeAvailability(typeID int64) string {
	return fmt.Sprintf("%s:tickettype:%d:availability", ns, typeID)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
