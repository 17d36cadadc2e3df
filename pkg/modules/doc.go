// Package modules holds the static registry of system modules and the
// permission names they declare.
//
// Permission names are "<Module>:<action>", for example
// "Documents:editArticles". The registry is parsed once from the embedded
// modules.yaml and never changes while the process runs. Disabled modules keep
// their declarations but contribute no permissions.
//
// # Usage
//
//	registry := modules.MustDefault()
//	for _, m := range registry.ListEnabled() {
//		fmt.Println(m.Name, m.PermissionNames())
//	}
//
//	// Seed the permissions table
//	n, err := registry.Seed(ctx, store)
package modules
