// Package core contains the credential lifecycle and authenticated request
// pipeline for the mini-program platform API: access token renewal, session
// secret registry, signed payment requests and request dispatch. Transport,
// persistence and signing are injected through the contracts declared here;
// core must not depend on concrete adapters.
package core
