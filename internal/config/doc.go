// Package config читает конфигурацию процессов из переменных окружения.
//
// Перед чтением подгружается .env из рабочей директории (если есть);
// уже заданные переменные окружения им не перезаписываются.
package config
