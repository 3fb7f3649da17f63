package watermark

import "fmt"

// ErrECCFailure is returned when Reed-Solomon decoding cannot recover a
// valid codeword (too many byte errors for the configured parity).
type ErrECCFailure struct {
	Reason string
}

func (e *ErrECCFailure) Error() string {
	return fmt.Sprintf("reed-solomon decode failed: %s", e.Reason)
}

// GF(256) arithmetic over field generator 0x11d (x^8+x^4+x^3+x^2+1). This is
// hand-rolled rather than taken from a library: the payload codec needs
// error-position-unknown symbol correction (reconstruct a codeword when it
// is not known which bytes are wrong), which is what classical RS decoding
// does. github.com/klauspost/reedsolomon instead implements erasure coding —
// reconstructing data at *known* missing shard positions — a different
// problem, so it cannot serve this component.
const gfPoly = 0x11d

var gfExp [512]byte
var gfLog [256]byte

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfLog[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPoly
		}
	}
	for i := 255; i < 512; i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("reed-solomon: division by zero in GF(256)")
	}
	return gfExp[(int(gfLog[a])+255-int(gfLog[b]))%255]
}

func gfPow(a byte, power int) byte {
	if a == 0 {
		if power == 0 {
			return 1
		}
		return 0
	}
	e := (int(gfLog[a]) * power) % 255
	for e < 0 {
		e += 255
	}
	return gfExp[e]
}

func gfInverse(a byte) byte {
	return gfExp[255-int(gfLog[a])]
}

// polyMul multiplies two polynomials over GF(256), coefficients highest
// degree first.
func polyMul(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b)-1)
	for i, ac := range a {
		if ac == 0 {
			continue
		}
		for j, bc := range b {
			out[i+j] ^= gfMul(ac, bc)
		}
	}
	return out
}

// polyEval evaluates polynomial p (highest degree first) at x.
func polyEval(p []byte, x byte) byte {
	var y byte
	for _, c := range p {
		y = gfMul(y, x) ^ c
	}
	return y
}

// rsGeneratorPoly builds the RS generator polynomial for nsym parity
// symbols: product_{i=0}^{nsym-1} (x - 2^i).
func rsGeneratorPoly(nsym int) []byte {
	g := []byte{1}
	for i := 0; i < nsym; i++ {
		g = polyMul(g, []byte{1, gfPow(2, i)})
	}
	return g
}

// rsEncode appends nsym parity bytes to data, returning the full systematic
// codeword (data followed by parity).
func rsEncode(data []byte, nsym int) []byte {
	gen := rsGeneratorPoly(nsym)

	msg := make([]byte, len(data)+nsym)
	copy(msg, data)

	remainder := make([]byte, len(msg))
	copy(remainder, msg)

	for i := 0; i < len(data); i++ {
		coef := remainder[i]
		if coef == 0 {
			continue
		}
		for j, gc := range gen {
			remainder[i+j] ^= gfMul(gc, coef)
		}
	}

	out := make([]byte, len(data)+nsym)
	copy(out, data)
	copy(out[len(data):], remainder[len(data):])
	return out
}

// rsDecode corrects up to nsym/2 byte errors in a systematic codeword and
// returns the original data bytes. Returns ErrECCFailure if the syndromes
// are non-zero but no consistent error-locator polynomial of degree <=
// nsym/2 can be found (uncorrectable).
func rsDecode(codeword []byte, nsym int) ([]byte, error) {
	syndromes := rsSyndromes(codeword, nsym)
	if allZero(syndromes) {
		return append([]byte(nil), codeword[:len(codeword)-nsym]...), nil
	}

	errLocator, err := berlekampMassey(syndromes, nsym)
	if err != nil {
		return nil, err
	}

	errPositions, err := chienSearch(errLocator, len(codeword))
	if err != nil {
		return nil, err
	}

	corrected := append([]byte(nil), codeword...)
	if err := forneyCorrect(corrected, syndromes, errLocator, errPositions); err != nil {
		return nil, err
	}

	finalSyndromes := rsSyndromes(corrected, nsym)
	if !allZero(finalSyndromes) {
		return nil, &ErrECCFailure{Reason: "correction did not reduce syndromes to zero"}
	}

	return corrected[:len(corrected)-nsym], nil
}

// rsSyndromes computes nsym syndrome values for a received codeword.
func rsSyndromes(codeword []byte, nsym int) []byte {
	synd := make([]byte, nsym)
	for i := 0; i < nsym; i++ {
		synd[i] = polyEval(codeword, gfPow(2, i))
	}
	return synd
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// berlekampMassey finds the shortest linear feedback shift register
// (the error locator polynomial) generating the syndrome sequence. The
// register length is tracked explicitly so full-capacity codewords
// (exactly nsym/2 byte errors) still resolve; the working polynomial is
// kept lowest-degree first and reversed on return to match polyEval's
// highest-first convention.
func berlekampMassey(syndromes []byte, nsym int) ([]byte, error) {
	cur := []byte{1}  // C(x), lowest degree first
	prev := []byte{1} // copy of C(x) at the last length change
	length := 0
	shift := 1 // x^shift multiplier applied to prev in each update
	lastDelta := byte(1)

	for n := 0; n < nsym; n++ {
		delta := syndromes[n]
		for i := 1; i <= length && i < len(cur); i++ {
			delta ^= gfMul(cur[i], syndromes[n-i])
		}

		if delta == 0 {
			shift++
			continue
		}

		coef := gfDiv(delta, lastDelta)
		if 2*length <= n {
			saved := append([]byte(nil), cur...)
			cur = polyAddShifted(cur, prev, coef, shift)
			length = n + 1 - length
			prev = saved
			lastDelta = delta
			shift = 1
		} else {
			cur = polyAddShifted(cur, prev, coef, shift)
			shift++
		}
	}

	if 2*length > nsym {
		return nil, &ErrECCFailure{Reason: "too many errors to correct"}
	}

	for len(cur) < length+1 {
		cur = append(cur, 0)
	}
	locator := make([]byte, length+1)
	for i := range locator {
		locator[i] = cur[length-i]
	}
	for len(locator) > 1 && locator[0] == 0 {
		locator = locator[1:]
	}
	return locator, nil
}

// polyAddShifted returns cur + coef*x^shift*prev over GF(256), lowest
// degree first.
func polyAddShifted(cur, prev []byte, coef byte, shift int) []byte {
	out := append([]byte(nil), cur...)
	for len(out) < shift+len(prev) {
		out = append(out, 0)
	}
	for i, c := range prev {
		out[shift+i] ^= gfMul(coef, c)
	}
	return out
}

// chienSearch finds the roots of the error locator polynomial by brute-force
// evaluation (Chien search), returning the error byte positions (index from
// the start of the codeword).
func chienSearch(errLocator []byte, codewordLen int) ([]int, error) {
	numErrors := len(errLocator) - 1
	if numErrors == 0 {
		return nil, nil
	}

	var positions []int
	for i := 0; i < codewordLen; i++ {
		x := gfPow(2, i)
		xInv := gfInverse(x)
		if polyEval(errLocator, xInv) == 0 {
			positions = append(positions, codewordLen-1-i)
		}
	}

	if len(positions) != numErrors {
		return nil, &ErrECCFailure{Reason: "error locator roots do not match error count"}
	}
	return positions, nil
}

// forneyCorrect computes error magnitudes via the Forney algorithm and
// applies them in place to codeword at the given error positions.
func forneyCorrect(codeword []byte, syndromes, errLocator []byte, positions []int) error {
	errEvaluator := rsErrorEvaluator(syndromes, errLocator, len(positions))

	locatorDeriv := rsFormalDerivative(errLocator)

	n := len(codeword)
	for _, pos := range positions {
		i := n - 1 - pos
		xInv := gfInverse(gfPow(2, i))

		errEvalAtX := polyEval(errEvaluator, xInv)
		denom := polyEval(locatorDeriv, xInv)
		if denom == 0 {
			return &ErrECCFailure{Reason: "forney denominator is zero"}
		}

		magnitude := gfDiv(gfMul(gfPow(2, i), errEvalAtX), denom)
		codeword[pos] ^= magnitude
	}
	return nil
}

// rsErrorEvaluator computes the error evaluator polynomial
// Omega(x) = [S(x) * Lambda(x)] mod x^(numErrors+1) ... here computed as the
// product truncated to the syndrome length actually available.
func rsErrorEvaluator(syndromes, errLocator []byte, numErrors int) []byte {
	rev := reversePoly(syndromes)
	product := polyMul(rev, errLocator)
	if len(product) > len(syndromes) {
		product = product[len(product)-len(syndromes):]
	}
	return product
}

func reversePoly(p []byte) []byte {
	out := make([]byte, len(p))
	for i, v := range p {
		out[len(p)-1-i] = v
	}
	return out
}

// rsFormalDerivative computes the formal derivative of a GF(256) polynomial
// p (highest degree first, degree n = len(p)-1). In characteristic 2, the
// derivative of c*x^d is c*x^(d-1) when d is odd and 0 when d is even, so
// each term's position is preserved — only even-degree terms are zeroed,
// never removed — leaving a degree-(n-1) polynomial of length n, one
// shorter than p.
func rsFormalDerivative(p []byte) []byte {
	n := len(p) - 1
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		degree := n - i
		if degree%2 == 1 {
			out[i] = p[i]
		}
	}
	return out
}
