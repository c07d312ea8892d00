package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/ldap"
)

const usersOU = "ou=users"

var posixObjectClasses = []string{"unixUser", "posixAccount"}

// DirectoryEntry is the POSIX account synthesized for one group member
type DirectoryEntry struct {
	DN            string
	CN            string
	Name          string
	Path          string
	URI           string
	LoginShell    string
	HomeDirectory string
	UID           string
	UIDNumber     int32
	GIDNumber     int
	ObjectClass   []string
}

// Username derives the unix account name from an IAM path by dropping every slash
func Username(path string) string {
	return strings.ReplaceAll(path, "/", "")
}

// UserDN returns the distinguished name of an account under baseDN
func UserDN(username, baseDN string) string {
	if baseDN == "" {
		return fmt.Sprintf("cn=%s,%s", username, usersOU)
	}
	return fmt.Sprintf("cn=%s,%s,%s", username, usersOU, baseDN)
}

// newDirectoryEntry returns false for members without a usable username
func newDirectoryEntry(m iam.Member, dir *config.Directory) (DirectoryEntry, bool) {
	username := Username(m.Path)
	if username == "" {
		return DirectoryEntry{}, false
	}

	shell := dir.LoginShell
	if shell == "" {
		shell = config.DefaultLoginShell
	}
	home := dir.HomePrefix
	if home == "" {
		home = config.DefaultHomePrefix
	}

	return DirectoryEntry{
		DN:            UserDN(username, dir.BaseDN),
		CN:            username,
		Name:          m.UserName,
		Path:          m.Path,
		URI:           m.Arn,
		LoginShell:    shell,
		HomeDirectory: strings.TrimSuffix(home, "/") + "/" + username,
		UID:           username,
		UIDNumber:     UIDNumber(m.CreateDate, m.UserName),
		GIDNumber:     dir.DefaultGID,
		ObjectClass:   posixObjectClasses,
	}, true
}

// ToLDAP renders the entry for the protocol layer
func (e DirectoryEntry) ToLDAP() *ldap.Entry {
	attrs := []*ldap.EntryAttribute{}
	attrs = append(attrs, &ldap.EntryAttribute{Name: "cn", Values: []string{e.CN}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "name", Values: []string{e.Name}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "path", Values: []string{e.Path}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "uri", Values: []string{e.URI}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "loginShell", Values: []string{e.LoginShell}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "homeDirectory", Values: []string{e.HomeDirectory}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "uid", Values: []string{e.UID}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "uidNumber", Values: []string{strconv.FormatInt(int64(e.UIDNumber), 10)}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "gidNumber", Values: []string{strconv.Itoa(e.GIDNumber)}})
	attrs = append(attrs, &ldap.EntryAttribute{Name: "objectClass", Values: append([]string(nil), e.ObjectClass...)})

	return &ldap.Entry{DN: e.DN, Attributes: attrs}
}
