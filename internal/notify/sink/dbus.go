package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	logx "parkpin/pkg/logx"
)

const (
	notifyObj    = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// DBus shows persistent desktop notifications through the freedesktop
// notification daemon on the session bus.
type DBus struct {
	appName string
	log     logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDBus(appName string, log logx.Logger) *DBus {
	if appName == "" {
		appName = "parkpin"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DBus{appName: appName, log: log}
}

func (d *DBus) bus() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DBus) Show(ctx context.Context, n Notification) error {
	conn, err := d.bus()
	if err != nil {
		return err
	}

	obj := conn.Object(notifyObj, notifyPath)
	if obj == nil {
		return fmt.Errorf("object %s not found on session bus", notifyObj)
	}

	actions := make([]string, 0, len(n.Actions)*2)
	for _, a := range n.Actions {
		actions = append(actions, a.Action, a.Title)
	}

	hints := map[string]dbus.Variant{}
	if n.RequireInteraction {
		// Urgency 2 = critical; the daemon keeps it on screen until dismissed.
		hints["urgency"] = dbus.MakeVariant(uint8(2))
	}

	// expire timeout -1 = daemon default.
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName,
		uint32(0),
		n.Icon,
		n.Title,
		n.Body,
		actions,
		hints,
		int32(-1),
	)
	if call.Err != nil {
		// Drop the cached connection: the session bus may have gone away.
		d.mu.Lock()
		d.conn = nil
		d.mu.Unlock()
		return call.Err
	}
	d.log.Debug("desktop notification shown", logx.String("title", n.Title), logx.String("tag", n.Tag))
	return nil
}
