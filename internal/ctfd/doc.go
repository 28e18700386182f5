// Package ctfd is a small client for the JSON API of CTFd-style platforms.
//
// Only two endpoints are used: the challenge list and the per-challenge
// detail. Both answer with an envelope {"success": bool, "data": ...}; a
// response without success set is treated as a failure regardless of its
// HTTP status.
package ctfd
