package extract

func plainText(data []byte) Result {
	return Result{Text: string(data), Pages: 1, Method: "plain"}
}
