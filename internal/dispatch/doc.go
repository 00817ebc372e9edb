// Package dispatch installs and removes jobs in the host's native scheduler.
//
// Backends:
//   - at: one-shot queue (at/atq/atrm/at -c)
//   - cron: per-user crontab, one tagged line per recurring task
//   - unix: at for one-shot, cron for recurring
//   - taskdef: Windows Task Scheduler (windows builds only)
//
// Every job carries the task name as a tag so only jobs owned by this program
// are ever touched. Dispatchers never read or write the task registry.
package dispatch
