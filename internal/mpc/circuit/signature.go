package circuit

import "crypto/ed25519"

// A assinatura do cluster cobre (computation_id, circuit, output) com um
// separador fixo, amarrando o resultado ao identificador da computação.
// Resultado cuja assinatura não verifica é fatal e não-retryável.

func outputMessage(computationID, circuitName string, payload []byte) []byte {
	msg := make([]byte, 0, len(computationID)+len(circuitName)+len(payload)+2)
	msg = append(msg, computationID...)
	msg = append(msg, 0x1f)
	msg = append(msg, circuitName...)
	msg = append(msg, 0x1f)
	msg = append(msg, payload...)
	return msg
}

// AbortPayload é o corpo assinado quando o cluster reporta uma computação
// abortada; o worker verifica a assinatura sobre a mesma construção.
func AbortPayload(reason string) []byte {
	return append([]byte("ABORTED\x1f"), reason...)
}

// SignOutput assina a saída de uma computação com a chave do cluster
func SignOutput(priv ed25519.PrivateKey, computationID, circuitName string, payload []byte) []byte {
	return ed25519.Sign(priv, outputMessage(computationID, circuitName, payload))
}

// VerifyOutputSignature verifica a assinatura do cluster sobre a saída
func VerifyOutputSignature(pub ed25519.PublicKey, computationID, circuitName string, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, outputMessage(computationID, circuitName, payload), sig)
}
