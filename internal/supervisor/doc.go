// Package supervisor keeps the helper services (record store and search
// index) running. It downloads missing helper binaries for the current
// platform, spawns each helper on its configured port, waits until it
// answers, and restarts it under a suture tree when it dies.
package supervisor
