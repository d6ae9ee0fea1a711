package couchbase

// Client owns the Couchbase connection and the stores built on it
type Client struct {
	connManager  *ConnectionManager
	auditStore   *AuditStore
	userSettings *UserSettingsStore
}

// Options name the bucket and collections used by the gateway
type Options struct {
	URL                    string
	Username               string
	Password               string
	Bucket                 string
	AuditCollection        string
	UserSettingsCollection string
}

// NewClient connects to Couchbase and prepares the stores
func NewClient(opts Options) (*Client, error) {
	connManager, err := NewConnectionManager(opts.URL, opts.Username, opts.Password, opts.Bucket)
	if err != nil {
		return nil, err
	}

	docs := NewDocumentManager(connManager)

	return &Client{
		connManager:  connManager,
		auditStore:   NewAuditStore(docs, opts.AuditCollection),
		userSettings: NewUserSettingsStore(docs, opts.UserSettingsCollection),
	}, nil
}

// Close closes the Couchbase connection
func (c *Client) Close() error {
	return c.connManager.Close()
}

// AuditStore returns the audit record store
func (c *Client) AuditStore() *AuditStore {
	return c.auditStore
}

// UserSettings returns the user settings store
func (c *Client) UserSettings() *UserSettingsStore {
	return c.userSettings
}
