// Package workdir fixes the on-disk layout of an assembly working
// directory and serializes access to it.
package workdir
