/*
Package ports defines the boundary interfaces between the Pergola engine and
its adapters: workflow sources, run snapshot stores, and interactive input
surfaces. Implementations live under internal/adapters and cmd.
*/
package ports
