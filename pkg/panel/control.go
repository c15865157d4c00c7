package panel

import (
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/pkg/errors"

	"github.com/skycoin/xfce4-panel/pkg/external"
	"github.com/skycoin/xfce4-panel/pkg/provider"
)

// Control service address on the session bus.
const (
	ServiceName      = "org.xfce.Panel"
	ServicePath      = dbus.ObjectPath("/org/xfce/Panel")
	ServiceInterface = "org.xfce.Panel"
)

var (
	// ErrInvalidInput occurs when an input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyRunning is returned when another panel owns the service name.
	ErrAlreadyRunning = errors.New("a panel is already running on this session bus")
)

// ItemSummary describes an item on the panel.
type ItemSummary struct {
	ID       int32
	Name     string
	External bool
	State    string
}

// ModuleSummary describes a plugin module that can be added.
type ModuleSummary struct {
	Name        string
	DisplayName string
	Comment     string
	Unique      bool
}

// Items summarizes the items on the panel, in panel order.
func (r *Runtime) Items() []ItemSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ItemSummary, 0, len(r.order))
	for _, id := range r.order {
		p := r.items[id].Provider
		s := ItemSummary{ID: int32(id), Name: p.Name(), State: "internal"}
		if h, ok := p.(*external.Handle); ok {
			s.External = true
			s.State = h.State().String()
		}
		out = append(out, s)
	}
	return out
}

// Modules summarizes the plugin modules a new item can be created from.
func (r *Runtime) Modules() []ModuleSummary {
	ds := r.factory.Modules()
	out := make([]ModuleSummary, 0, len(ds))
	for _, d := range ds {
		out = append(out, ModuleSummary{Name: d.Name, DisplayName: d.DisplayName, Comment: d.Comment, Unique: d.Unique})
	}
	return out
}

// PluginLogs returns what the wrapper of id wrote after since.
func (r *Runtime) PluginLogs(id int, since time.Time) ([]string, error) {
	if r.logs == nil {
		return nil, ErrNoLogStore
	}
	return r.logs.LogsSince(id, since)
}

// Control exposes a Runtime on the session bus.
type Control struct {
	r *Runtime
}

// NewControl returns the bus object for r.
func NewControl(r *Runtime) *Control {
	return &Control{r: r}
}

func busError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return dbus.MakeFailedError(err)
}

// DisplayPreferencesDialog asks for the panel preferences.
func (c *Control) DisplayPreferencesDialog(startupID string) *dbus.Error {
	c.r.log.Infof("Preferences requested over the bus (startup id %q).", startupID)
	c.r.HandleSignal(0, provider.SignalPanelPreferences)
	return nil
}

// DisplayItemsDialog asks for the add-items dialog.
func (c *Control) DisplayItemsDialog(startupID string) *dbus.Error {
	c.r.log.Infof("Items dialog requested over the bus (startup id %q).", startupID)
	c.r.HandleSignal(0, provider.SignalAddNewItems)
	return nil
}

// Save writes the panel config.
func (c *Control) Save() *dbus.Error {
	return busError(c.r.Save())
}

// AddNewItem adds a plugin at the end of the panel.
func (c *Control) AddNewItem(name string, args []string) *dbus.Error {
	if name == "" {
		return busError(ErrInvalidInput)
	}
	id, err := c.r.AddItem(name, -1, args)
	if err != nil {
		return busError(err)
	}
	c.r.log.Infof("Added %s-%d over the bus.", name, id)
	return nil
}

// Terminate quits the panel, restarting it when restart is set.
func (c *Control) Terminate(restart bool) *dbus.Error {
	c.r.Quit(restart)
	return nil
}

// ListItems returns the items on the panel.
func (c *Control) ListItems() ([]ItemSummary, *dbus.Error) {
	return c.r.Items(), nil
}

// ListModules returns the plugin modules that can be added.
func (c *Control) ListModules() ([]ModuleSummary, *dbus.Error) {
	return c.r.Modules(), nil
}

// PluginLogs returns the log lines plugin id wrote after since, an RFC 3339
// timestamp. An empty since returns everything.
func (c *Control) PluginLogs(id int32, since string) ([]string, *dbus.Error) {
	t := time.Time{}
	if since != "" {
		var err error
		if t, err = time.Parse(time.RFC3339Nano, since); err != nil {
			return nil, busError(errors.Wrap(ErrInvalidInput, err.Error()))
		}
	}
	logs, err := c.r.PluginLogs(int(id), t)
	return logs, busError(err)
}

// Exporter is the part of a bus connection Export needs. *dbus.Conn
// implements it.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
}

// Export publishes c at ServicePath and claims ServiceName.
func (c *Control) Export(conn Exporter) error {
	if err := conn.Export(c, ServicePath, ServiceInterface); err != nil {
		return errors.Wrap(err, "failed to export control service")
	}
	node := &introspect.Node{
		Name: string(ServicePath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: ServiceInterface, Methods: introspect.Methods(c)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ServicePath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return errors.Wrap(err, "failed to export introspection data")
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return errors.Wrap(err, "failed to request service name")
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrAlreadyRunning
	}
	return nil
}

// Caller is the part of a bus object the Client needs. dbus.BusObject
// implements it.
type Caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Client calls a running panel's control service.
type Client struct {
	obj Caller
}

// NewClient returns a client for the panel on conn.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(ServiceName, ServicePath)}
}

func (c *Client) call(method string, args ...interface{}) *dbus.Call {
	return c.obj.Call(ServiceInterface+"."+method, 0, args...)
}

// DisplayPreferencesDialog calls the method of the same name.
func (c *Client) DisplayPreferencesDialog() error {
	return c.call("DisplayPreferencesDialog", "").Err
}

// DisplayItemsDialog calls the method of the same name.
func (c *Client) DisplayItemsDialog() error {
	return c.call("DisplayItemsDialog", "").Err
}

// Save calls the method of the same name.
func (c *Client) Save() error {
	return c.call("Save").Err
}

// AddNewItem calls the method of the same name.
func (c *Client) AddNewItem(name string, args []string) error {
	if args == nil {
		args = []string{}
	}
	return c.call("AddNewItem", name, args).Err
}

// Terminate calls the method of the same name.
func (c *Client) Terminate(restart bool) error {
	return c.call("Terminate", restart).Err
}

// ListItems calls the method of the same name.
func (c *Client) ListItems() ([]ItemSummary, error) {
	var items []ItemSummary
	err := c.call("ListItems").Store(&items)
	return items, err
}

// ListModules calls the method of the same name.
func (c *Client) ListModules() ([]ModuleSummary, error) {
	var modules []ModuleSummary
	err := c.call("ListModules").Store(&modules)
	return modules, err
}

// PluginLogs calls the method of the same name. A zero since returns every
// stored line.
func (c *Client) PluginLogs(id int, since time.Time) ([]string, error) {
	s := ""
	if !since.IsZero() {
		s = since.Format(time.RFC3339Nano)
	}
	var logs []string
	err := c.call("PluginLogs", int32(id), s).Store(&logs)
	return logs, err
}
