package credential

// Static reports health for markets whose broker authenticates with fixed
// API keys and has no reissue lifecycle.
type Static struct{}

func (Static) Health() Health { return Health{State: StateStatic} }
