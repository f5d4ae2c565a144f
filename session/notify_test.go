package session

import (
	"errors"
	"testing"
	"time"
)

func TestNotificationDeliversFirstEvent(t *testing.T) {
	n := NewOEPNotification()

	n.Notify(0x400000, 0x401234)
	n.Notify(0x500000, 0x501234) // dropped: the event fires once per run

	event, err := n.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if event.Base != 0x400000 || event.OEP != 0x401234 {
		t.Errorf("event = %+v, want the first notification", event)
	}
}

func TestNotificationTimeout(t *testing.T) {
	n := NewOEPNotification()

	_, err := n.Wait(20 * time.Millisecond)
	if !errors.Is(err, ErrOEPTimeout) {
		t.Fatalf("error = %v, want ErrOEPTimeout", err)
	}
}

func TestNotifyFromAnotherGoroutine(t *testing.T) {
	n := NewOEPNotification()

	go n.Notify(0x10000, 0x11000)

	event, err := n.Wait(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if event.Base != 0x10000 || event.OEP != 0x11000 {
		t.Errorf("event = %+v", event)
	}
}
