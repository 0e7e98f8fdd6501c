//go:build !unix

package archive

var platformPermissions PermissionPort = NoPermissions{}
