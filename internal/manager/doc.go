// Package manager is the only writer of the task registry and the only caller
// of the native dispatcher.
//
// Every mutation follows the same order: touch native state first, then
// persist the registry, compensating the native side when persisting fails.
// Readers get an immutable snapshot and never wait on native commands.
package manager
