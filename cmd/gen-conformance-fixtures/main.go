package main

func main() {
	if err := newGeneratorCommand().Execute(); err != nil {
		fatalf("%v", err)
	}
}
