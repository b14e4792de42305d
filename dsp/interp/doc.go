// Package interp provides the fractional interpolation kernels used by
// delay lines and variable-rate resampling reads.
//
//   - [Lerp]:     2-point linear interpolation
//   - [Hermite4]: 4-point cubic Hermite (Catmull-Rom)
package interp
