// Command tinyredis-client is an interactive REPL: it dials the server,
// reads one line at a time (with history), splits it into words, sends
// them as a request Array, and prints the decoded reply.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"tinyredis/frame"
)

const historyFileName = ".tinyredis_history"

func main() {
	hostname := flag.String("hostname", "127.0.0.1", "server hostname")
	port := flag.Uint16("port", 6379, "server port")
	flag.Parse()

	addr := net.JoinHostPort(*hostname, strconv.Itoa(int(*port)))
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tinyredis-client: connect:", err)
		os.Exit(1)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyPath()
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	prompt := fmt.Sprintf("%s> ", addr)
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			return // EOF or Ctrl-C/Ctrl-D
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		args := strings.Fields(input)
		if err := sendRequest(writer, args); err != nil {
			fmt.Fprintln(os.Stderr, "write error:", err)
			return
		}
		reply, err := frame.Decode(reader)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			return
		}
		printReply(reply, 0)
	}
}

func sendRequest(w *bufio.Writer, args []string) error {
	items := make([]frame.Frame, len(args))
	for i, a := range args {
		items[i] = frame.NewBulkString(a)
	}
	if err := frame.Encode(w, frame.NewArray(items...)); err != nil {
		return err
	}
	return w.Flush()
}

func printReply(f frame.Frame, depth int) {
	indent := strings.Repeat("  ", depth)
	switch f.Kind {
	case frame.Simple:
		fmt.Println(indent + f.Str)
	case frame.Error:
		fmt.Println(indent + "(error) " + f.Str)
	case frame.Integer:
		fmt.Printf("%s(integer) %d\n", indent, f.Int)
	case frame.Bulk:
		if f.BulkNull {
			fmt.Println(indent + "(nil)")
			return
		}
		fmt.Printf("%s%q\n", indent, string(f.Bytes))
	case frame.Array:
		if f.ArrayNull {
			fmt.Println(indent + "(nil)")
			return
		}
		for _, item := range f.Items {
			printReply(item, depth+1)
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}
