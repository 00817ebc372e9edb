// Package task holds the registry row type, weekday sets, task naming and
// the error taxonomy shared by the scheduler packages.
package task
