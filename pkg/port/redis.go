package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nobletooth/hitcache/pkg/cache"
	"github.com/nobletooth/hitcache/pkg/scan"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var redisAddress = flag.String("redis_address", ":6380", "The ip:port to listen on for Redis protocol.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// outputKind is the RESP type a redisOutput is written as.
type outputKind int

const (
	outputSimpleString outputKind = iota
	outputBulk
	outputNil
	outputInt
	outputArray
	outputError
)

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	kind            outputKind
	closeConnection bool     // Closes the connection after writing if true.
	str             string   // Simple string or error message.
	bulk            []byte   // Bulk string payload.
	integer         int      // Integer reply.
	array           []string // Array of bulk strings.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{kind: outputSimpleString, str: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{kind: outputNil}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{kind: outputInt, integer: i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{kind: outputSimpleString, str: s}
}

func writeRedisBulk(b []byte) redisOutput {
	return redisOutput{kind: outputBulk, bulk: b}
}

func writeRedisArray(items []string) redisOutput {
	return redisOutput{kind: outputArray, array: items}
}

func writeRedisError(err error) redisOutput {
	return redisOutput{kind: outputError, str: "ERR " + err.Error()}
}

func wrongArgCount(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// replyWriter is the subset of redcon.Conn used to write replies.
type replyWriter interface {
	WriteString(str string)
	WriteBulk(bulk []byte)
	WriteBulkString(bulk string)
	WriteNull()
	WriteInt(num int)
	WriteArray(count int)
	WriteError(msg string)
}

// writeTo writes the output as a RESP reply.
func (o redisOutput) writeTo(w replyWriter) {
	switch o.kind {
	case outputSimpleString:
		w.WriteString(o.str)
	case outputBulk:
		w.WriteBulk(o.bulk)
	case outputNil:
		w.WriteNull()
	case outputInt:
		w.WriteInt(o.integer)
	case outputArray:
		w.WriteArray(len(o.array))
		for _, item := range o.array {
			w.WriteBulkString(item)
		}
	case outputError:
		w.WriteError(o.str)
	}
}

type redisHandler struct {
	layer cache.Layer[[]byte]
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(layer cache.Layer[[]byte]) (*redisHandler, error) {
	if layer == nil {
		return nil, errors.New("expected a non-nil cache layer")
	}
	return &redisHandler{layer: layer}, nil
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch command := strings.ToUpper(cmd.command); command {
	case "PING":
		switch len(cmd.args) {
		case 0:
			return writeRedisString("PONG")
		case 1:
			return writeRedisBulk([]byte(cmd.args[0]))
		default:
			return wrongArgCount(command)
		}
	case "ECHO":
		if len(cmd.args) != 1 {
			return wrongArgCount(command)
		}
		return writeRedisBulk([]byte(cmd.args[0]))
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "SET":
		if len(cmd.args) < 2 {
			return wrongArgCount(command)
		}
		if len(cmd.args) > 2 { // EX, PX, NX and friends.
			return writeRedisError(errors.New("SET options are not supported, every entry lives for the cache TTL"))
		}
		if err := rh.layer.Set(cmd.args[0], []byte(cmd.args[1])); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArgCount(command)
		}
		if value, err := rh.layer.Get(cmd.args[0]); cache.ShouldLoad(err) {
			return writeRedisNil()
		} else if err != nil {
			return writeRedisError(err)
		} else {
			return writeRedisBulk(value)
		}
	case "DBSIZE":
		if len(cmd.args) != 0 {
			return wrongArgCount(command)
		}
		return writeRedisInt(rh.layer.Size())
	case "FLUSHDB", "FLUSHALL":
		rh.layer.Clear()
		return writeRedisString(RedisOk)
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArgCount(command)
		}
		keys, err := scan.MatchGlob(cmd.args[0], slices.Values(rh.layer.Keys()))
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisArray(slices.Collect(keys))
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// RunRedisServer starts a Redis protocol server that serves the provided cache layer until ctx is cancelled.
func RunRedisServer(ctx context.Context, layer cache.Layer[[]byte]) error {
	if *redisAddress == "" {
		return errors.New("expected a non-empty --redis_address flag")
	}

	redisHandler, err := newRedisHandler(layer)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *redisAddress,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand; copies the arguments since redcon reuses its read buffer.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			output.writeTo(conn)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close redis connection.", "remote", conn.RemoteAddr(), "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted redis connection.", "remote", conn.RemoteAddr())
			return true // Accept all connections.
		},
		/*closed*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Redis connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	listenSignal := make(chan error, 1) // Receives nil once the server listens, or the listen error.
	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenServeAndSignal(listenSignal); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	// Close only works on a listening server, so wait for the listener before watching ctx.
	if err := <-listenSignal; err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *redisAddress, err)
	}
	slog.Info("Serving redis protocol.", "address", *redisAddress)

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err, ok := <-serverErrSignal:
		if ok {
			return fmt.Errorf("redis server stopped unexpectedly: %w", err)
		}
	}

	return nil // Exited with no errors.
}
