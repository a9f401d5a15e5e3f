// Package protocol declares the spinal-cord processing protocol: the ordered
// stages for the anatomical T2w reference and the optional T2*w and diffusion
// modalities, the shared metric tables they feed and the final artifacts a
// successful run must leave behind.
//
// Every stage resolves its outputs through the resolver, so any artifact with
// a manual override under derivatives/labels replaces the automated tool.
// Registrations go through the subject's transform chain: T2w is registered
// to the template first and later modalities are warm-started from that edge.
package protocol
