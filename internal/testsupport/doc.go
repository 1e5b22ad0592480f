// Package testsupport holds fixtures shared by package tests: a temp-dir
// config builder, item CSV writers and a scripted fake backend.
package testsupport
