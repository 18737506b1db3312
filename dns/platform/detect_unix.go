//go:build !windows && !(darwin && !ios)

package platform

// DetectAdapter returns the resolver file adapter
func DetectAdapter(opts Options) (Adapter, error) {
	return NewResolvConfAdapter(opts.ResolvConfPath), nil
}
