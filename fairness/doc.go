// Package fairness corrects probabilistic binary classifiers so that a
// fairness criterion holds approximately across sensitive groups.
//
// The pipeline is:
//
//	samples -> CollectRates / CollectOdds -> BaseRateTable
//	BaseRateTable -> Source.Params -> DebiasingTensor
//	DebiasingTensor -> ReweightedLoss (training) | Predictor (inference)
//
// Everything here is a pure function of its inputs. A DebiasingTensor is
// built once per training run and then only read, so batches may be
// evaluated concurrently.
package fairness
