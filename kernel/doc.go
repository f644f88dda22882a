// Package kernel implements the convolution forward pass.
//
// Forward maps an input volume and a layer to a new activation volume. Filter
// taps that fall outside the input (because of padding or stride overhang)
// contribute nothing to the sum; this zero-padding policy is part of the
// kernel contract rather than an artefact of loop bounds. The functions are
// pure and can be called concurrently on independent inputs.
package kernel
