// Package secure computes the logits of a linear model over CKKS-encrypted
// inputs. The weight vector and every input row are encrypted separately;
// their slot-wise product is summed into slot 0 with power-of-two rotations
// and only that slot is decrypted.
package secure

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
	"gonum.org/v1/gonum/mat"
)

// DefaultParameters returns a LogN=14 parameter set with a 2^40 default
// scale, enough for one multiplication and the rotation sum.
func DefaultParameters() (hefloat.Parameters, error) {
	return hefloat.NewParametersFromLiteral(hefloat.ParametersLiteral{
		LogN: 14,
		Q: []uint64{0x200000008001, 0x400018001, // 45 + 9 x 34
			0x3fffd0001, 0x400060001,
			0x400068001, 0x3fff90001,
			0x400080001, 0x4000a8001,
			0x400108001, 0x3ffeb8001},
		P:               []uint64{0x7fffffd8001, 0x7fffffc8001}, // 43, 43
		LogDefaultScale: 40,
	})
}

// Scorer holds the keys for inner products of vectors up to Dim entries.
type Scorer struct {
	Dim int

	params    hefloat.Parameters
	encoder   *hefloat.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	eval      *hefloat.Evaluator
}

// NewScorer generates a key pair, the relinearization key and the Galois
// keys for rotations by 1, 2, 4, ... below dim.
func NewScorer(params hefloat.Parameters, dim int) (*Scorer, error) {
	if dim <= 0 || dim > params.MaxSlots() {
		return nil, fmt.Errorf("secure: dimension %d outside [1, %d]", dim, params.MaxSlots())
	}
	kgen := hefloat.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)

	var galEls []uint64
	for k := 1; k < dim; k *= 2 {
		galEls = append(galEls, params.GaloisElement(k))
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, kgen.GenGaloisKeysNew(galEls, sk)...)

	return &Scorer{
		Dim:       dim,
		params:    params,
		encoder:   hefloat.NewEncoder(params),
		encryptor: hefloat.NewEncryptor(params, pk),
		decryptor: hefloat.NewDecryptor(params, sk),
		eval:      hefloat.NewEvaluator(params, evk),
	}, nil
}

func (s *Scorer) encrypt(v []float64) (*rlwe.Ciphertext, error) {
	pt := hefloat.NewPlaintext(s.params, s.params.MaxLevel())
	if err := s.encoder.Encode(v, pt); err != nil {
		return nil, fmt.Errorf("secure: encode: %w", err)
	}
	ct, err := s.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("secure: encrypt: %w", err)
	}
	return ct, nil
}

// innerProduct returns Σ_i a_i·b_i over the first n slots.
func (s *Scorer) innerProduct(a, b *rlwe.Ciphertext, n int) (float64, error) {
	ct, err := s.eval.MulNew(a, b)
	if err != nil {
		return 0, fmt.Errorf("secure: multiply: %w", err)
	}
	if err := s.eval.Relinearize(ct, ct); err != nil {
		return 0, fmt.Errorf("secure: relinearize: %w", err)
	}
	for k := 1; k < n; k *= 2 {
		rot, err := s.eval.RotateNew(ct, k)
		if err != nil {
			return 0, fmt.Errorf("secure: rotate by %d: %w", k, err)
		}
		if err := s.eval.Add(ct, rot, ct); err != nil {
			return 0, fmt.Errorf("secure: add: %w", err)
		}
	}
	out := make([]float64, 1)
	if err := s.encoder.Decode(s.decryptor.DecryptNew(ct), out); err != nil {
		return 0, fmt.Errorf("secure: decode: %w", err)
	}
	return out[0], nil
}

// Logits returns x·w + bias for every row of x. The bias rides along as an
// extra input column fixed at one, so Dim must be at least len(w)+1.
func (s *Scorer) Logits(x mat.Matrix, w []float64, bias float64) ([]float64, error) {
	r, c := x.Dims()
	if c != len(w) {
		return nil, fmt.Errorf("secure: inputs have %d columns, weights %d", c, len(w))
	}
	if c+1 > s.Dim {
		return nil, fmt.Errorf("secure: %d weights and a bias exceed scorer dimension %d", c, s.Dim)
	}
	ctw, err := s.encrypt(append(append([]float64(nil), w...), bias))
	if err != nil {
		return nil, err
	}
	row := make([]float64, c+1)
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		mat.Row(row[:c], i, x)
		row[c] = 1
		ctr, err := s.encrypt(row)
		if err != nil {
			return nil, err
		}
		if out[i], err = s.innerProduct(ctr, ctw, c+1); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}
