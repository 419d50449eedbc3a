package service

// Scope identifies the tenant and user a request acts for. It is carried
// explicitly into every service call instead of living in a global.
type Scope struct {
	TenantID  uint64
	UserID    string
	Subdomain string
}
